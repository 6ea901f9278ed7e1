package audio

import (
	"encoding/binary"
	"math"
)

// Resample converts input from fromRate to toRate. Output length is
// round(len(input) * toRate / fromRate). Downsampling averages every source
// sample inside each output window; upsampling interpolates linearly.
func Resample(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return input
	}

	ratio := float64(fromRate) / float64(toRate)
	outputLen := int(math.Round(float64(len(input)) / ratio))
	output := make([]float32, outputLen)
	if len(input) == 0 {
		return output
	}

	if ratio > 1 {
		averageDown(output, input, ratio)
	} else {
		interpolateUp(output, input, ratio)
	}
	return output
}

func averageDown(output, input []float32, ratio float64) {
	last := len(input) - 1
	for i := range output {
		start := int(float64(i) * ratio)
		end := int(float64(i+1) * ratio)
		if end > len(input) {
			end = len(input)
		}
		if start >= end {
			output[i] = input[min(start, last)]
			continue
		}

		var sum float64
		for _, s := range input[start:end] {
			sum += float64(s)
		}
		output[i] = float32(sum / float64(end-start))
	}
}

func interpolateUp(output, input []float32, ratio float64) {
	for i := range output {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(input) {
			output[i] = input[srcIdx]*(1-frac) + input[srcIdx+1]*frac
		} else if srcIdx < len(input) {
			output[i] = input[srcIdx]
		} else {
			output[i] = input[len(input)-1]
		}
	}
}

func ResampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate {
		return samples
	}

	floats := Int16ToFloat32(samples)
	resampled := Resample(floats, fromRate, toRate)
	return FloatToInt16(resampled)
}

func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func Int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(s) / 32768.0
	}
	return result
}

// FloatToInt16 clamps to [-1, 1] and scales asymmetrically so that -1 maps to
// math.MinInt16 and +1 to math.MaxInt16.
func FloatToInt16(samples []float32) []int16 {
	result := make([]int16, len(samples))
	for i, s := range samples {
		if s != s {
			continue
		}
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		if s < 0 {
			result[i] = int16(math.Max(float64(s)*32768.0, math.MinInt16))
		} else {
			result[i] = int16(math.Min(float64(s)*32767.0, math.MaxInt16))
		}
	}
	return result
}
