package testing

import (
	"math/rand"
	"testing"
)

// RunMapBenchmarks runs the throughput benchmarks for an IMap implementation.
func RunMapBenchmarks(b *testing.B, name string, factory MapFactory) {
	const prefill = 10_000

	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			m := factory(b).Map
			defer m.Close()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, _, err := m.Put(int64(i), "value"); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("Update", func(b *testing.B) {
			m := factory(b).Map
			defer m.Close()
			for i := int64(0); i < prefill; i++ {
				mustPut(b, m, i, valueOf(i))
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, _, err := m.Put(int64(i%prefill), "updated"); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("Get", func(b *testing.B) {
			m := factory(b).Map
			defer m.Close()
			for i := int64(0); i < prefill; i++ {
				mustPut(b, m, i, valueOf(i))
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, _, err := m.Get(rand.Int63n(prefill)); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("Put&Remove", func(b *testing.B) {
			m := factory(b).Map
			defer m.Close()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				k := int64(i)
				if _, _, err := m.Put(k, "value"); err != nil {
					b.Fatal(err)
				}
				if _, _, err := m.Remove(k); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("Above", func(b *testing.B) {
			m := factory(b).Map
			defer m.Close()
			for i := int64(0); i < prefill; i++ {
				mustPut(b, m, i, valueOf(i))
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				// roughly 1% of the keys
				if _, err := m.Above(prefill-prefill/100, true); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("Mixed/Parallel", func(b *testing.B) {
			m := factory(b).Map
			defer m.Close()
			for i := int64(0); i < prefill; i++ {
				mustPut(b, m, i, valueOf(i))
			}

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					k := rand.Int63n(prefill)
					var err error
					if rand.Intn(10) == 0 {
						_, _, err = m.Put(k, "updated")
					} else {
						_, _, err = m.Get(k)
					}
					if err != nil {
						b.Error(err)
						return
					}
				}
			})
		})
	})
}
