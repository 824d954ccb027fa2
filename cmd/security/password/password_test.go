package password

import (
	"errors"
	"strings"
	"testing"
)

func cheap() Config {
	cfg := DefaultConfig()
	cfg.MemoryKiB = 8 * 1024
	cfg.Iterations = 1
	return cfg
}

func TestHashAndVerify(t *testing.T) {
	t.Parallel()

	cfg := cheap()
	h, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("hash=%q", h)
	}

	ok, err := cfg.Verify(h, "correct horse battery")
	if err != nil || !ok {
		t.Fatalf("Verify ok=%v err=%v want=true,nil", ok, err)
	}
	ok, err = cfg.Verify(h, "wrong horse battery")
	if err != nil || ok {
		t.Fatalf("Verify ok=%v err=%v want=false,nil", ok, err)
	}

	h2, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h == h2 {
		t.Fatalf("salted hashes must differ")
	}
}

func TestVerify_RejectsBadHashes(t *testing.T) {
	t.Parallel()

	cfg := cheap()
	expensive := cheap()
	expensive.MemoryKiB = 64 * 1024
	costly, err := expensive.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	cases := map[string]string{
		"garbage":      "not-a-hash",
		"argon2i":      "$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5aw",
		"old version":  "$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5aw",
		"zero memory":  "$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5aw",
		"short salt":   "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$a2V5a2V5a2V5a2V5a2V5aw",
		"too costly":   costly,
		"bad base64":   "$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5a2V5a2V5a2V5a2V5aw",
		"missing part": "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ",
	}
	for name, h := range cases {
		ok, err := cfg.Verify(h, "correct horse battery")
		if ok || !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("%s: ok=%v err=%v want=false,%v", name, ok, err, ErrInvalidHash)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxLength = 16

	cases := []struct {
		pw   string
		want error
	}{
		{pw: "short", want: ErrPasswordTooShort},
		{pw: "this one is far too long", want: ErrPasswordTooLong},
		{pw: "Password123", want: ErrWeakPassword},
		{pw: "aaaaaaaaaa", want: ErrWeakPassword},
		{pw: "비밀번호는길다", want: ErrPasswordTooShort},
		{pw: "calendar-42!", want: nil},
	}
	for _, tc := range cases {
		if err := cfg.Validate(tc.pw); !errors.Is(err, tc.want) {
			t.Fatalf("Validate(%q)=%v want=%v", tc.pw, err, tc.want)
		}
	}

	cfg.RejectCommon = false
	if err := cfg.Validate("password123"); err != nil {
		t.Fatalf("RejectCommon=false: %v", err)
	}
}
