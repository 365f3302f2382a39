package rga

import "testing"

func BenchmarkAppend(b *testing.B) {
	r, _ := New(1)
	anchor := r.SentinelStart()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id, err := r.InsertAfter(anchor, 'x')
		if err != nil {
			b.Fatal(err)
		}
		anchor = id
	}
}

func BenchmarkConcurrentPrepend(b *testing.B) {
	r, _ := New(1)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := r.InsertAfter(StartID, 'x'); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkRender(b *testing.B) {
	r, _ := New(1)
	anchor := r.SentinelStart()
	for i := 0; i < 10000; i++ {
		anchor, _ = r.InsertAfter(anchor, rune('a'+i%26))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if len(r.Runes()) != 10000 {
			b.Fatal("bad render")
		}
	}
}

func BenchmarkApplyRemote(b *testing.B) {
	src, _ := New(1)
	anchor := src.SentinelStart()
	nodes := make([]Node, 0, 10000)
	for i := 0; i < 10000; i++ {
		anchor, _ = src.InsertAfter(anchor, 'x')
		n, _ := src.Node(anchor)
		nodes = append(nodes, n)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst, _ := New(2)
		for _, n := range nodes {
			dst.ApplyRemote(n)
		}
	}
}
