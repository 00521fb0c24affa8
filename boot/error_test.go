package boot

import "testing"

func TestBootError(t *testing.T) {
	err := &Error{
		Module:  "foo",
		Message: "error message",
		Kind:    KindFormat,
	}

	if err.Error() != err.Message {
		t.Fatalf("expected to err.Error() to return %q; got %q", err.Message, err.Error())
	}
}

func TestErrorKindString(t *testing.T) {
	specs := []struct {
		kind ErrorKind
		exp  string
	}{
		{KindUnknown, "unknown"},
		{KindResourceExhaustion, "resource exhaustion"},
		{KindMappingConflict, "mapping conflict"},
		{KindFormat, "format error"},
		{KindService, "service error"},
		{ErrorKind(0xff), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.kind.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}
