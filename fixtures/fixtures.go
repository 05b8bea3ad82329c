package fixtures

import (
	_ "embed"
)

//go:embed config/config.yaml.template
var ConfigTemplate []byte

//go:embed plans/lenet.yaml
var SamplePlan []byte
