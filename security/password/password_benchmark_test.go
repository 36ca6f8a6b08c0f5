package password

import "testing"

// BenchmarkVerify_Default measures verification cost at production
// parameters. Run with -bench to sanity-check the tens-of-milliseconds
// target after tuning.
func BenchmarkVerify_Default(b *testing.B) {
	cfg := DefaultConfig()
	h, err := cfg.Hash("benchmark password 123!")
	if err != nil {
		b.Fatalf("Hash error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := cfg.Verify(h, "benchmark password 123!")
		if err != nil || !ok {
			b.Fatalf("Verify: ok=%v err=%v", ok, err)
		}
	}
}

func BenchmarkHash_Default(b *testing.B) {
	cfg := DefaultConfig()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.Hash("benchmark password 123!"); err != nil {
			b.Fatalf("Hash error: %v", err)
		}
	}
}
