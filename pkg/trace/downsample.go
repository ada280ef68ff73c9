package trace

// Downsample reduces points to at most maxPoints by decimation, reusing dst
// when it has the capacity. Pressed points are not lost: a dropped pressed
// point marks the kept point of its bucket as pressed.
func Downsample(dst, points []Point, maxPoints int) []Point {
	if maxPoints <= 0 || len(points) <= maxPoints {
		if cap(dst) >= len(points) {
			dst = dst[:len(points)]
		} else {
			dst = make([]Point, len(points))
		}
		copy(dst, points)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Point, 0, maxPoints)
	}

	step := float64(len(points)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		lo := int(float64(i) * step)
		hi := int(float64(i+1) * step)
		if hi > len(points) {
			hi = len(points)
		}
		p := points[lo]
		for _, q := range points[lo:hi] {
			if q.Pressed {
				p.Pressed = true
				break
			}
		}
		dst = append(dst, p)
	}

	return dst
}
