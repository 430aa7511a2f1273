package game

// Paddle is a player controlled rectangle constrained to the field height.
type Paddle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
	Speed  float64
}

// MoveUp shifts the paddle towards the top edge, clamped at zero.
func (p *Paddle) MoveUp() {
	if p == nil {
		return
	}
	//1.- Apply the movement speed and clamp against the top wall.
	p.Y -= p.Speed
	if p.Y < 0 {
		p.Y = 0
	}
}

// MoveDown shifts the paddle towards the bottom edge, clamped at the field height.
func (p *Paddle) MoveDown(fieldHeight float64) {
	if p == nil {
		return
	}
	//1.- Apply the movement speed and clamp against the bottom wall.
	p.Y += p.Speed
	if p.Y+p.Height > fieldHeight {
		p.Y = fieldHeight - p.Height
	}
}

// CenterY reports the vertical midpoint of the paddle face.
func (p *Paddle) CenterY() float64 {
	if p == nil {
		return 0
	}
	return p.Y + p.Height/2
}
