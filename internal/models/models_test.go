package models

import (
	"testing"
	"time"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"session", func() *BaseModel {
			s := &Session{}
			return &s.BaseModel
		}},
		{"audit_log", func() *BaseModel {
			a := &AuditLog{}
			return &a.BaseModel
		}},
		{"experience", func() *BaseModel {
			e := &Experience{}
			return &e.BaseModel
		}},
		{"verification_request", func() *BaseModel {
			v := &VerificationRequest{}
			return &v.BaseModel
		}},
		{"association_request", func() *BaseModel {
			a := &AssociationRequest{}
			return &a.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			if err := model.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if model.ID == "" {
				t.Fatal("expected ID to be generated")
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" verifier ")
	if !ok || role != RoleVerifier {
		t.Fatalf("expected VERIFIER, got %q (%v)", role, ok)
	}
	if _, ok := ParseRole("OWNER"); ok {
		t.Fatal("unknown role accepted")
	}
	if RoleSuperAdmin.SelfAssignable() {
		t.Fatal("super admin must not be self assignable")
	}
	if !RoleInstituteAdmin.IsAdmin() {
		t.Fatal("institute admin should be an admin role")
	}
}

func TestParseSubjectType(t *testing.T) {
	for _, input := range []string{"experience", "Experiences", "EXPERIENCE"} {
		got, ok := ParseSubjectType(input)
		if !ok || got != SubjectExperience {
			t.Fatalf("%q: expected EXPERIENCE, got %q", input, got)
		}
	}
	if _, ok := ParseSubjectType("award"); ok {
		t.Fatal("unknown subject accepted")
	}
	if SubjectProject.NewClaim() == nil {
		t.Fatal("expected a project model")
	}
}

func TestUserBeforeSaveNormalises(t *testing.T) {
	blank := "  "
	u := &User{Email: " Ada@Example.COM ", Institute: &blank}
	if err := u.BeforeSave(nil); err != nil {
		t.Fatalf("before save: %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Fatalf("email not normalised: %q", u.Email)
	}
	if u.Institute != nil {
		t.Fatal("blank institute should be cleared")
	}
}

func TestIdentityHasRole(t *testing.T) {
	inst := "Inst"
	identity := (&User{Email: "v@inst.edu", Role: RoleVerifier, Institute: &inst}).Identity()
	if identity.Institute != "Inst" {
		t.Fatalf("institute not projected: %q", identity.Institute)
	}
	if !identity.HasRole() {
		t.Fatal("empty role list should match")
	}
	if !identity.HasRole(RoleStudent, RoleVerifier) {
		t.Fatal("expected verifier match")
	}
	if identity.HasRole(RoleStudent) {
		t.Fatal("unexpected student match")
	}
	var missing *Identity
	if missing.HasRole() {
		t.Fatal("nil identity must not match")
	}
}

func TestSessionActive(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	if !s.Active(now) {
		t.Fatal("expected active session")
	}
	s.RevokedAt = &now
	if s.Active(now) {
		t.Fatal("revoked session reported active")
	}
}
