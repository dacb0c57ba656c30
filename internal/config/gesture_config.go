// File: internal/config/gesture_config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// GestureConfig defines stroke timings and path sampling.
type GestureConfig struct {
	TapDuration       time.Duration `mapstructure:"tap_duration" yaml:"tap_duration"`
	LongTouchDuration time.Duration `mapstructure:"long_touch_duration" yaml:"long_touch_duration"`
	DoubleTapInterval time.Duration `mapstructure:"double_tap_interval" yaml:"double_tap_interval"`
	SwipeDuration     time.Duration `mapstructure:"swipe_duration" yaml:"swipe_duration"`
	ScrollDuration    time.Duration `mapstructure:"scroll_duration" yaml:"scroll_duration"`
	DragHold          time.Duration `mapstructure:"drag_hold" yaml:"drag_hold"`
	ScrollDistance    int           `mapstructure:"scroll_distance" yaml:"scroll_distance"`
	// PathSteps is the number of samples along a moving stroke.
	PathSteps int `mapstructure:"path_steps" yaml:"path_steps"`
	// Curvature offsets the Bezier control points perpendicular to the
	// stroke, as a fraction of its length. Zero yields a straight line.
	Curvature float64 `mapstructure:"curvature" yaml:"curvature"`
}

func setGestureDefaults(v *viper.Viper) {
	v.SetDefault("gesture.tap_duration", "50ms")
	v.SetDefault("gesture.long_touch_duration", "1s")
	v.SetDefault("gesture.double_tap_interval", "100ms")
	v.SetDefault("gesture.swipe_duration", "300ms")
	v.SetDefault("gesture.scroll_duration", "400ms")
	v.SetDefault("gesture.drag_hold", "600ms")
	v.SetDefault("gesture.scroll_distance", 600)
	v.SetDefault("gesture.path_steps", 20)
	v.SetDefault("gesture.curvature", 0.0)
}

// Validate checks the GestureConfig settings.
func (g *GestureConfig) Validate() error {
	if g.TapDuration <= 0 {
		return fmt.Errorf("tap_duration must be positive")
	}
	if g.PathSteps < 2 {
		return fmt.Errorf("path_steps must be at least 2")
	}
	if g.ScrollDistance <= 0 {
		return fmt.Errorf("scroll_distance must be positive")
	}
	if g.Curvature < 0 || g.Curvature > 1 {
		return fmt.Errorf("curvature must be between 0 and 1")
	}
	return nil
}
