package session

import "testing"

// FuzzDecodeUser exercises the user record decoder with arbitrary inputs.
// Goal: no panics, graceful error handling.
func FuzzDecodeUser(f *testing.F) {
	encoded, err := EncodeUser(User{ID: "u-1", Email: "ana@example.com", Name: "Ana", Role: RoleDoctor, Verified: true})
	if err == nil {
		f.Add(encoded)
		f.Add(encoded[:5])
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{2})
	f.Add([]byte{255, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		u, err := DecodeUser(data)
		if err != nil {
			return
		}
		if _, err := EncodeUser(u); err != nil {
			t.Fatalf("re-encode of decoded user failed: %v", err)
		}
	})
}

func FuzzDecodeTokens(f *testing.F) {
	encoded, err := EncodeTokens(Tokens{AccessToken: "a.b.c", RefreshToken: "r"})
	if err == nil {
		f.Add(encoded)
	}
	f.Add([]byte{1, 0})
	f.Add([]byte{1, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DecodeTokens(data)
	})
}
