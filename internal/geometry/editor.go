package geometry

// Rect is an axis-aligned rectangle in display space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Handle identifies which corner a resize gesture grabbed.
type Handle string

const (
	HandleNone Handle = ""
	HandleNW   Handle = "nw"
	HandleNE   Handle = "ne"
	HandleSW   Handle = "sw"
	HandleSE   Handle = "se"
)

// AdjustRect applies a pointer displacement (dx, dy) to r within a page of
// pageWidth x pageHeight display units. With HandleNone the rectangle is
// translated without changing size; with a corner handle the grabbed edges
// move while the opposite edges stay fixed. The result always satisfies the
// minimum size and stays fully inside the page. The function is pure; the
// interactive layer samples pointer events and calls it repeatedly.
func AdjustRect(r Rect, pageWidth, pageHeight, dx, dy float64, handle Handle) Rect {
	if handle == HandleNone {
		r.X = clamp(r.X+dx, 0, pageWidth-r.Width)
		r.Y = clamp(r.Y+dy, 0, pageHeight-r.Height)
		return r
	}

	left := r.X
	top := r.Y
	right := r.X + r.Width
	bottom := r.Y + r.Height

	switch handle {
	case HandleNW:
		left = clamp(left+dx, 0, right-MinFieldWidth)
		top = clamp(top+dy, 0, bottom-MinFieldHeight)
	case HandleNE:
		right = clamp(right+dx, left+MinFieldWidth, pageWidth)
		top = clamp(top+dy, 0, bottom-MinFieldHeight)
	case HandleSW:
		left = clamp(left+dx, 0, right-MinFieldWidth)
		bottom = clamp(bottom+dy, top+MinFieldHeight, pageHeight)
	case HandleSE:
		right = clamp(right+dx, left+MinFieldWidth, pageWidth)
		bottom = clamp(bottom+dy, top+MinFieldHeight, pageHeight)
	}

	return Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
