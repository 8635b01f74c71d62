package main

import (
	"testing"

	"github.com/lox/wandistats/internal/models"
)

func TestStationBinsCmd_Parse(t *testing.T) {
	c := StationBinsCmd{
		SpeedBin:  []string{"still:0:10", "windy:10:"},
		Threshold: []string{"frost:low:below:0"},
	}
	speeds, thresholds, err := c.parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(speeds) != 2 || speeds[1] != (models.SpeedBin{Name: "windy", Min: 10}) {
		t.Errorf("speeds = %+v", speeds)
	}
	if len(thresholds) != 1 || thresholds[0].Direction != models.Below {
		t.Errorf("thresholds = %+v", thresholds)
	}

	c = StationBinsCmd{Threshold: []string{"hot:high:above:30"}}
	speeds, _, err = c.parse()
	if err != nil {
		t.Fatal(err)
	}
	if speeds != nil {
		t.Error("speed bins should be left alone when not given")
	}

	c = StationBinsCmd{Reset: true}
	speeds, thresholds, err = c.parse()
	if err != nil {
		t.Fatal(err)
	}
	if speeds == nil || len(speeds) != 0 || thresholds == nil || len(thresholds) != 0 {
		t.Errorf("reset = %v %v, want empty non-nil", speeds, thresholds)
	}

	if _, _, err := (&StationBinsCmd{Reset: true, SpeedBin: []string{"a:0:1"}}).parse(); err == nil {
		t.Error("expected error combining --reset with bins")
	}
	if _, _, err := (&StationBinsCmd{SpeedBin: []string{"a:5:1"}}).parse(); err == nil {
		t.Error("expected error for inverted speed bin")
	}
}
