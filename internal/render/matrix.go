package render

// Matrix is a row-major 4x4 transform.
type Matrix [16]float64

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// MatrixFromSlice builds a matrix from 16 row-major values.
func MatrixFromSlice(v []float64) (Matrix, bool) {
	var m Matrix
	if len(v) != 16 {
		return m, false
	}
	copy(m[:], v)
	return m, true
}

// Mul returns m * other (other applied first when transforming points as
// rows, matching parent-to-world accumulation order).
func (m Matrix) Mul(other Matrix) Matrix {
	var out Matrix
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[r*4+k] * other[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}
