package tiles

type Size int

const (
	Large Size = iota
	Medium
	Small
)

func (s Size) String() string {
	switch s {
	case Small:
		return "small"
	case Medium:
		return "medium"
	}
	return "large"
}

// SizeFor maps the number of visible tiles to a display size. There is no
// hysteresis: crossing a threshold flips the size immediately.
func SizeFor(visible int) Size {
	if visible >= 10 {
		return Small
	}
	if visible >= 5 {
		return Medium
	}
	return Large
}
