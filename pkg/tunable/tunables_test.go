package tunable

import "testing"

func TestTunables(t *testing.T) {
	var ts Tunables
	var applied []float64
	kp := ts.Create("kp", 50, 5, func(v float64) { applied = append(applied, v) })
	ki := ts.Create("ki", 1, 0.5, nil)

	if ts.Current() != kp {
		t.Fatal("Expected the first tunable to be selected")
	}
	kp.Add(2)
	kp.Add(-1)
	if kp.Get() != 55 {
		t.Errorf("Expected 55, got %v", kp.Get())
	}
	if len(applied) != 2 || applied[1] != 55 {
		t.Errorf("Expected change callbacks, got %v", applied)
	}

	if ts.SelectNext() != ki || ts.SelectNext() != kp || ts.SelectPrev() != ki {
		t.Error("Selection did not cycle")
	}
	ki.Add(-5)
	if ki.Get() != 0 {
		t.Errorf("Expected gains to stop at zero, got %v", ki.Get())
	}
	if ts.ByName("ki") != ki || ts.ByName("nope") != nil {
		t.Error("ByName lookup failed")
	}
}
