package mel

import "math"

// fft computes the discrete Fourier transform of the given real/imaginary
// input. Even-length inputs are split recursively (Cooley-Tukey); odd lengths
// fall back to the direct O(n^2) transform, so any frame size is supported
// while the common 400-sample Whisper frame stays O(n log n) down to its odd
// factor.
func fft(re, im []float64) ([]float64, []float64) {
	n := len(re)
	if n == 1 {
		return []float64{re[0]}, []float64{im[0]}
	}
	if n%2 != 0 {
		return dft(re, im)
	}

	half := n / 2
	evenRe := make([]float64, half)
	evenIm := make([]float64, half)
	oddRe := make([]float64, half)
	oddIm := make([]float64, half)
	for i := 0; i < half; i++ {
		evenRe[i] = re[2*i]
		evenIm[i] = im[2*i]
		oddRe[i] = re[2*i+1]
		oddIm[i] = im[2*i+1]
	}

	eRe, eIm := fft(evenRe, evenIm)
	oRe, oIm := fft(oddRe, oddIm)

	outRe := make([]float64, n)
	outIm := make([]float64, n)
	for k := 0; k < half; k++ {
		angle := -2 * math.Pi * float64(k) / float64(n)
		c, s := math.Cos(angle), math.Sin(angle)
		tRe := c*oRe[k] - s*oIm[k]
		tIm := c*oIm[k] + s*oRe[k]

		outRe[k] = eRe[k] + tRe
		outIm[k] = eIm[k] + tIm
		outRe[k+half] = eRe[k] - tRe
		outIm[k+half] = eIm[k] - tIm
	}
	return outRe, outIm
}

// dft is the direct O(n^2) transform used for odd-length segments
func dft(re, im []float64) ([]float64, []float64) {
	n := len(re)
	outRe := make([]float64, n)
	outIm := make([]float64, n)
	for k := 0; k < n; k++ {
		var sumRe, sumIm float64
		for j := 0; j < n; j++ {
			angle := -2 * math.Pi * float64(k) * float64(j) / float64(n)
			c, s := math.Cos(angle), math.Sin(angle)
			sumRe += re[j]*c - im[j]*s
			sumIm += re[j]*s + im[j]*c
		}
		outRe[k] = sumRe
		outIm[k] = sumIm
	}
	return outRe, outIm
}
