package apierr

import "testing"

func TestErrorCodesMatchSpec(t *testing.T) {
	cases := []struct {
		err    *Error
		code   string
		status int
	}{
		{DuplicateSkill("s", "1.0.0"), "SKILL_REG_001", 409},
		{RegValidationFailed("bad"), "SKILL_REG_002", 422},
		{InvalidCode("bad code"), "SKILL_REG_003", 400},
		{RegInternal("boom"), "SKILL_REG_999", 500},
		{SkillNotFound("s"), "SKILL_INV_001", 404},
		{InvalidInputs("bad"), "SKILL_INV_002", 422},
		{ExecutionTimeout("exec_1"), "SKILL_INV_003", 504},
		{Overloaded(), "SKILL_INV_004", 500},
		{InvInternal("boom"), "SKILL_INV_999", 500},
		{InvalidWorkflow("bad"), "SKILL_ORC_001", 422},
		{CyclicWorkflow("cycle"), "SKILL_ORC_002", 400},
		{OrcInternal("boom"), "SKILL_ORC_999", 500},
	}
	for _, c := range cases {
		if c.err.Code() != c.code {
			t.Errorf("code = %q, want %q", c.err.Code(), c.code)
		}
		if c.err.HTTPStatus() != c.status {
			t.Errorf("%s: HTTPStatus = %d, want %d", c.code, c.err.HTTPStatus(), c.status)
		}
	}
}

func TestAs(t *testing.T) {
	err := SkillNotFound("s")
	got, ok := As(err)
	if !ok || got.Code() != "SKILL_INV_001" {
		t.Fatalf("As() = %v, %v", got, ok)
	}

	if _, ok := As(errString("plain")); ok {
		t.Fatalf("As() should fail for non-apierr error")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
