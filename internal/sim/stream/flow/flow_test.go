package flow

import "testing"

func TestRotateCW_FourTurnsIsIdentity(t *testing.T) {
	for f := NNN; f <= None; f++ {
		g := f.RotateCW().RotateCW().RotateCW().RotateCW()
		if g != f {
			t.Fatalf("%v rotated four times = %v", f, g)
		}
	}
	if NNN.RotateCW() != EEE || N_W.RotateCW() != N_E {
		t.Fatalf("unexpected quarter turn: %v %v", NNN.RotateCW(), N_W.RotateCW())
	}
}

func TestMirrorX(t *testing.T) {
	cases := []struct{ in, want Flow }{
		{in: NNN, want: NNN},
		{in: SSS, want: SSS},
		{in: N_W, want: N_E},
		{in: EEE, want: WWW},
		{in: SSE, want: SSW},
		{in: None, want: None},
	}
	for _, c := range cases {
		if got := c.in.MirrorX(); got != c.want {
			t.Fatalf("MirrorX(%v)=%v want %v", c.in, got, c.want)
		}
		if got := c.in.MirrorX().MirrorX(); got != c.in {
			t.Fatalf("double mirror of %v = %v", c.in, got)
		}
	}
}

func TestVectorRoundTrip(t *testing.T) {
	for f := NNN; f < None; f++ {
		x, z := f.Vector()
		if got := FromVector(x, z); got != f {
			t.Fatalf("FromVector(Vector(%v))=%v", f, got)
		}
	}
	if FromVector(0, 0) != None {
		t.Fatalf("zero vector should be None")
	}
}

func TestLerp(t *testing.T) {
	if got := Lerp(NNN, NNN, NNN, NNN, 0.3, 0.7); got != NNN {
		t.Fatalf("uniform lerp=%v want NNN", got)
	}
	if got := Lerp(None, None, None, None, 0.5, 0.5); got != None {
		t.Fatalf("dry lerp=%v want None", got)
	}
	if got := Lerp(NNN, None, None, None, 0.9, 0.9); got != None {
		t.Fatalf("mostly dry lerp=%v want None", got)
	}
	if got := Lerp(NNN, EEE, NNN, EEE, 0.5, 0.5); got != N_E {
		t.Fatalf("north/east blend=%v want N_E", got)
	}
}

func TestParse(t *testing.T) {
	f, err := ParseFlow("N_W")
	if err != nil || f != N_W {
		t.Fatalf("ParseFlow: %v %v", f, err)
	}
	if _, err := ParseFlow("XYZ"); err == nil {
		t.Fatalf("expected error for unknown token")
	}
	d, err := ParseDirection("west")
	if err != nil || d != West {
		t.Fatalf("ParseDirection: %v %v", d, err)
	}
}

func TestDirectionTransforms(t *testing.T) {
	if North.Clockwise() != East || West.Clockwise() != North {
		t.Fatalf("clockwise broken")
	}
	if East.MirrorX() != West || North.MirrorX() != North || South.MirrorX() != South {
		t.Fatalf("mirror broken")
	}
}
