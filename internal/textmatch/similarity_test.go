package textmatch

import "testing"

func TestSimilarityReflexive(t *testing.T) {
	for _, s := range []string{"", "iPhone 15 Pro", "AirPods", "a"} {
		if got := Similarity(s, s); got != 1.0 {
			t.Fatalf("Similarity(%q, %q) = %v, want 1.0", s, s, got)
		}
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"iPhone 15 Pro", "iphone 15"},
		{"AirPods Pro", "EarPods Pro"},
		{"Ahmad Rahman", "Ahmed Rahman"},
		{"", "something"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if ab != ba {
			t.Fatalf("Similarity(%q,%q)=%v != Similarity(%q,%q)=%v", p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestSimilarityKnownDistances(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"kitten", "sitting", (7.0 - 3.0) / 7.0},
		{"iphone", "IPHONE", 1.0},
		{"", "abc", 0.0},
		{"abc", "abd", (3.0 - 1.0) / 3.0},
	}
	for _, c := range cases {
		if got := Similarity(c.a, c.b); got != c.want {
			t.Fatalf("Similarity(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct{ in, want string }{
		{"0812-3456-7890", "81234567890"},
		{"+62 812 3456 7890", "81234567890"},
		{"6281234567890", "81234567890"},
		{"81234567890", "81234567890"},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  iPhone   15  Pro "); got != "iphone 15 pro" {
		t.Fatalf("NormalizeName = %q", got)
	}
}
