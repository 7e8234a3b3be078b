package scene

import "github.com/signalsfoundry/rf-propagation-sim/model"

// Transmitters returns the scene's transmitters in insertion order.
func Transmitters(s Scene) []model.Transmitter {
	var out []model.Transmitter
	for _, obj := range s.Objects() {
		if tx, ok := obj.(model.Transmitter); ok {
			out = append(out, tx)
		}
	}
	return out
}

// Receivers returns the scene's receivers in insertion order.
func Receivers(s Scene) []model.Receiver {
	var out []model.Receiver
	for _, obj := range s.Objects() {
		if rx, ok := obj.(model.Receiver); ok {
			out = append(out, rx)
		}
	}
	return out
}

// Walls returns the scene's walls in insertion order.
func Walls(s Scene) []model.Wall {
	var out []model.Wall
	for _, obj := range s.Objects() {
		if w, ok := obj.(model.Wall); ok {
			out = append(out, w)
		}
	}
	return out
}

// CountByType tallies objects by their type tag.
func CountByType(s Scene) map[string]int {
	counts := make(map[string]int)
	for _, obj := range s.Objects() {
		counts[obj.Type()]++
	}
	return counts
}
