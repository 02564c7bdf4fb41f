package content

import "testing"

func FuzzConvertToMovie(f *testing.F) {
	f.Add(int64(1), int64(1), "Inception", "movies")
	f.Add(int64(5), int64(-3), "", "page")

	f.Fuzz(func(t *testing.T, requested, id int64, title, kind string) {
		if requested <= 0 {
			t.Skip()
		}
		payload := nodePayload{Type: kind}
		if id != 0 {
			payload.ID = &id
		}
		if title != "" {
			payload.Title = &title
		}

		movie := convertToMovie(requested, payload)
		if movie == nil {
			t.Fatalf("convertToMovie returned nil")
		}
		if movie.ID <= 0 {
			t.Fatalf("movie id must be positive, got %d", movie.ID)
		}
	})
}
