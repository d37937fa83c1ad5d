package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/verifolio/internal/handlers/testutil"
	"github.com/charlesng35/verifolio/internal/models"
)

func TestAuditHandler_ListRequiresSuperAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	student := env.CreateUser("stu@uni.edu", models.RoleStudent, "")
	verifier := env.CreateUser("ver@inst.edu", models.RoleVerifier, "Inst")
	admin := env.CreateUser("root@verifolio.dev", models.RoleSuperAdmin, "")
	studentToken := env.Login(student)

	claimID := createExperience(t, env, studentToken)
	w := env.Request(http.MethodPost, "/verify/request/experience/"+claimID, map[string]string{"verifierEmail": verifier.Email}, studentToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/audit", nil, studentToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	adminToken := env.Login(admin)
	w = env.Request(http.MethodGet, "/api/audit?action=verification.request&per_page=10", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 1, resp.Meta.Total)
	require.Equal(t, 10, resp.Meta.PerPage)

	var logs []struct {
		Action string `json:"action"`
		Result string `json:"result"`
	}
	testutil.DecodeInto(t, resp.Data, &logs)
	require.Len(t, logs, 1)
	require.Equal(t, "verification.request", logs[0].Action)

	w = env.Request(http.MethodGet, "/api/audit?since=yesterday", nil, adminToken)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
