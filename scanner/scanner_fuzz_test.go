package scanner

import "testing"

func FuzzScanner(f *testing.F) {
	f.Add([]byte("<< /Type /Page >>"))
	f.Add([]byte("[ 1 2 3 ]"))
	f.Add([]byte("stream\n...data...\nendstream"))
	f.Add([]byte("BT /F1 12 Tf (Hello) Tj ET"))
	f.Add([]byte("<AABBCC>"))

	f.Fuzz(func(t *testing.T, data []byte) {
		s := New(data, Config{
			MaxStringLength: 1024,
			MaxArrayDepth:   10,
			MaxDictDepth:    10,
			MaxStreamLength: 1024,
		})
		for i := 0; i < len(data)+1; i++ {
			if _, err := s.Next(); err != nil {
				return
			}
		}
		t.Fatalf("scanner did not terminate on %q", data)
	})
}
