package httpserver

import (
	"fmt"
	"net/http"
	"testing"
)

func BenchmarkHandleSubmitRating(b *testing.B) {
	ts := buildTestServer(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := ts.do(http.MethodPost, "/movies/11/ratings", `{"rating":4}`, benchIP(i))
		if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}

func BenchmarkHandleGetRating(b *testing.B) {
	ts := buildTestServer(b)
	for i := 0; i < 50; i++ {
		ts.do(http.MethodPost, "/movies/12/ratings", fmt.Sprintf(`{"rating":%d}`, i%5+1), benchIP(1<<20+i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := ts.do(http.MethodGet, "/movies/12/rating", "", "")
		if rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}

func benchIP(i int) string {
	return fmt.Sprintf("10.%d.%d.%d", (i>>16)&255, (i>>8)&255, i&255)
}
