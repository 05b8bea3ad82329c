package gpu

// convertSlice converts between the two wire representations.
func convertSlice[From, To Numeric](input []From) []To {
	if input == nil {
		return nil
	}
	output := make([]To, len(input))
	for i, v := range input {
		output[i] = To(v)
	}
	return output
}

// Float64ToFloat32 converts a slice of float64 to float32
func Float64ToFloat32(input []float64) []float32 {
	return convertSlice[float64, float32](input)
}

// Float32ToFloat64 converts a slice of float32 to float64
func Float32ToFloat64(input []float32) []float64 {
	return convertSlice[float32, float64](input)
}
