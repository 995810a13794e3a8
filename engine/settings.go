package engine

// SpeedTier selects the serve speed of the ball.
type SpeedTier string

const (
	SpeedSlow   SpeedTier = "slow"
	SpeedNormal SpeedTier = "normal"
	SpeedFast   SpeedTier = "fast"
)

var tierSpeeds = map[SpeedTier]float64{
	SpeedSlow:   4,
	SpeedNormal: 6,
	SpeedFast:   8,
}

// Settings is fixed for the lifetime of a match. A zero field means the
// default value.
type Settings struct {
	Width        float64   `json:"width" validate:"omitempty,min=200,max=2000"`
	Height       float64   `json:"height" validate:"omitempty,min=150,max=1500"`
	PaddleWidth  float64   `json:"paddleWidth" validate:"omitempty,min=2,max=50"`
	PaddleHeight float64   `json:"paddleHeight" validate:"omitempty,min=20,max=400"`
	PaddleOffset float64   `json:"paddleOffset" validate:"omitempty,min=1,max=200"`
	PaddleSpeed  float64   `json:"paddleSpeed" validate:"omitempty,min=1,max=40"`
	BallSize     float64   `json:"ballSize" validate:"omitempty,min=2,max=50"`
	BallSpeed    SpeedTier `json:"ballSpeed" validate:"omitempty,oneof=slow normal fast"`
	WinScore     int       `json:"winScore" validate:"omitempty,min=1,max=21"`
}

func DefaultSettings() Settings {
	return Settings{
		Width:        800,
		Height:       500,
		PaddleWidth:  10,
		PaddleHeight: 90,
		PaddleOffset: 20,
		PaddleSpeed:  7,
		BallSize:     10,
		BallSpeed:    SpeedNormal,
		WinScore:     5,
	}
}

// WithDefaults fills every zero or unknown field from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.Width <= 0 {
		s.Width = d.Width
	}
	if s.Height <= 0 {
		s.Height = d.Height
	}
	if s.PaddleWidth <= 0 {
		s.PaddleWidth = d.PaddleWidth
	}
	if s.PaddleHeight <= 0 || s.PaddleHeight >= s.Height {
		s.PaddleHeight = d.PaddleHeight
	}
	if s.PaddleOffset <= 0 {
		s.PaddleOffset = d.PaddleOffset
	}
	if s.PaddleSpeed <= 0 {
		s.PaddleSpeed = d.PaddleSpeed
	}
	if s.BallSize <= 0 {
		s.BallSize = d.BallSize
	}
	if _, ok := tierSpeeds[s.BallSpeed]; !ok {
		s.BallSpeed = d.BallSpeed
	}
	if s.WinScore <= 0 {
		s.WinScore = d.WinScore
	}
	return s
}

// BaseSpeed is the serve speed in board units per tick.
func (s Settings) BaseSpeed() float64 {
	if v, ok := tierSpeeds[s.BallSpeed]; ok {
		return v
	}
	return tierSpeeds[SpeedNormal]
}
