package game

// Ball is the moving body of the simulation. Positions and speeds are
// expressed in field units per sub-step.
type Ball struct {
	X      float64
	Y      float64
	SpeedX float64
	SpeedY float64
	Radius float64
}

// Integrate advances the ball position by its velocity over the given step.
func (b *Ball) Integrate(step float64) {
	if b == nil || step <= 0 {
		return
	}
	//1.- Apply simple Euler integration on both axes.
	b.X += b.SpeedX * step
	b.Y += b.SpeedY * step
}

// ReflectX flips the horizontal velocity component.
func (b *Ball) ReflectX() {
	if b == nil {
		return
	}
	b.SpeedX = -b.SpeedX
}

// ReflectY flips the vertical velocity component.
func (b *Ball) ReflectY() {
	if b == nil {
		return
	}
	b.SpeedY = -b.SpeedY
}
