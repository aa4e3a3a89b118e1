package config

import "testing"

func TestValidateClampsFPS(t *testing.T) {
	c := &Config{UDID: "ABCD-1234", FPS: 0, Quality: 0.7, Port: 0}
	errs := c.Validate()
	if c.FPS != 1 {
		t.Fatalf("expected fps 0 to clamp to 1, got %d", c.FPS)
	}
	if len(errs) == 0 {
		t.Fatalf("expected a clamp warning to be recorded")
	}

	c.FPS = 999
	c.Validate()
	if c.FPS != 120 {
		t.Fatalf("expected fps 999 to clamp to 120, got %d", c.FPS)
	}
}

func TestValidateClampsQuality(t *testing.T) {
	c := &Config{UDID: "ABCD-1234", FPS: 60, Quality: 0}
	c.Validate()
	if c.Quality != 0.1 {
		t.Fatalf("expected quality 0 to clamp to 0.1, got %v", c.Quality)
	}

	c.Quality = 2
	c.Validate()
	if c.Quality != 1.0 {
		t.Fatalf("expected quality 2 to clamp to 1.0, got %v", c.Quality)
	}
}

func TestValidateRequiresUDID(t *testing.T) {
	c := &Config{FPS: 60, Quality: 0.7}
	errs := c.Validate()
	if len(errs) == 0 {
		t.Fatalf("expected missing udid to produce a validation error")
	}
}

func TestValidateLeavesSaneValuesUntouched(t *testing.T) {
	c := &Config{UDID: "ABCD-1234", FPS: 30, Quality: 0.5, Port: 8080}
	errs := c.Validate()
	if len(errs) != 0 {
		t.Fatalf("expected no errors for well-formed config, got %v", errs)
	}
	if c.FPS != 30 || c.Quality != 0.5 || c.Port != 8080 {
		t.Fatalf("Validate must not mutate already-valid fields")
	}
}
