package tests

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gatheria/apps/api/echo"
	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/lecture"
	"github.com/trezcool/gatheria/tests"
)

func joinBody(t *testing.T, code string) []byte {
	return marshalObj(t, echoapi.JoinRequest{Code: code})
}

func createLecture(t *testing.T, app *testApp, owner account.Account, name string) lecture.Lecture {
	t.Helper()
	l, err := app.lectureSvc.Create(ctxBg, owner, lecture.NewLecture{Name: name})
	require.NoError(t, err)
	return l
}

// Test_studentJourney walks a student from registration to enrollment.
func Test_studentJourney(t *testing.T) {
	app := setup(t)
	prof := testutil.CreateAccount(t, app.accRepo, "Prof. Kim", "prof@test.kr", testutil.TestPassword, account.RoleInstructor, account.StateActive)
	l1 := createLecture(t, app, prof, "Operating Systems")

	// register & sign in before verification
	do(t, app, httpTest{
		method: http.MethodPost, path: "/api/auth/student/register",
		body: registerBody(t, "a1@test.kr", "Student A", testutil.TestPassword), wantCode: http.StatusCreated,
	})
	rec := do(t, app, httpTest{
		method: http.MethodPost, path: "/api/auth/student/login",
		body: loginBody(t, "a1@test.kr", testutil.TestPassword, false), wantCode: http.StatusOK,
	})
	var login echoapi.LoginResponse
	unmarshalObj(t, rec, &login)
	token := login.AccessToken

	// every lecture endpoint is closed until the email is verified
	do(t, app, httpTest{path: "/api/lectures/enrolled", token: token, wantCode: http.StatusForbidden, wantErr: "account_not_active"})
	do(t, app, httpTest{
		method: http.MethodPost, path: "/api/lectures/join", token: token, body: joinBody(t, l1.Code),
		wantCode: http.StatusForbidden, wantErr: "account_not_active",
	})

	// verify
	do(t, app, httpTest{
		method: http.MethodPost, path: "/api/auth/email-verification/confirm",
		body: marshalObj(t, echoapi.VerificationConfirmRequest{Token: verificationToken(t, app, "a1@test.kr")}), wantCode: http.StatusOK,
	})

	// the same session now sees the account as active
	rec = do(t, app, httpTest{
		method: http.MethodPost, path: "/api/lectures/join", token: token, body: joinBody(t, " "+l1.Code+" "), wantCode: http.StatusOK,
	})
	var joined echoapi.JoinResponse
	unmarshalObj(t, rec, &joined)
	assert.True(t, joined.Created)
	assert.Equal(t, l1.ID, joined.ID)
	assert.Equal(t, l1.Identifier(), joined.Identifier)

	rec = do(t, app, httpTest{
		method: http.MethodPost, path: "/api/lectures/join", token: token, body: joinBody(t, l1.Code), wantCode: http.StatusOK,
	})
	var again echoapi.JoinResponse
	unmarshalObj(t, rec, &again)
	assert.False(t, again.Created)
	assert.True(t, joined.JoinedAt.Equal(again.JoinedAt))

	// enrolled lectures
	rec = do(t, app, httpTest{path: "/api/lectures/enrolled", token: token, wantCode: http.StatusOK})
	var enrolled []echoapi.LectureSummary
	unmarshalObj(t, rec, &enrolled)
	require.Len(t, enrolled, 1)
	assert.Equal(t, l1.ID, enrolled[0].ID)
	require.NotNil(t, enrolled[0].Instructor)
	assert.Equal(t, "Prof. Kim", enrolled[0].Instructor.Name)

	// lecture detail, as a member and as the owner
	for _, tok := range []string{token, getToken(t, app, prof)} {
		rec = do(t, app, httpTest{path: "/api/lectures/" + l1.Identifier(), token: tok, wantCode: http.StatusOK})
		var detail echoapi.LectureDetail
		unmarshalObj(t, rec, &detail)
		assert.Equal(t, "Operating Systems", detail.Name)
		assert.Equal(t, "prof@test.kr", detail.Instructor.Email)
		require.Len(t, detail.Students, 1)
		assert.Equal(t, "a1@test.kr", detail.Students[0].Email)
	}
}

func Test_lectureApi_instructor(t *testing.T) {
	app := setup(t)
	prof := testutil.CreateAccount(t, app.accRepo, "Prof", "prof@test.kr", "", account.RoleInstructor, account.StateActive)
	pending := testutil.CreateAccount(t, app.accRepo, "Pending", "pending@test.kr", "", account.RoleInstructor, account.StatePendingReview)
	student := testutil.CreateAccount(t, app.accRepo, "Student", "student@test.kr", "", account.RoleStudent, account.StateActive)
	profToken := getToken(t, app, prof)

	tests := []httpTest{
		{name: "anonymous", method: http.MethodPost, path: "/api/lectures", body: []byte(`{"name":"X"}`), wantCode: http.StatusUnauthorized, wantErr: "unauthenticated"},
		{name: "pending review", method: http.MethodPost, path: "/api/lectures", token: getToken(t, app, pending), body: []byte(`{"name":"X"}`), wantCode: http.StatusForbidden, wantErr: "account_not_active"},
		{name: "student", method: http.MethodPost, path: "/api/lectures", token: getToken(t, app, student), body: []byte(`{"name":"X"}`), wantCode: http.StatusForbidden, wantErr: "forbidden_role"},
		{name: "blank name", method: http.MethodPost, path: "/api/lectures", token: profToken, body: []byte(`{"name":"   "}`), wantCode: http.StatusBadRequest, wantErr: "validation_failed"},
		{name: "instructor on student endpoint", path: "/api/lectures/enrolled", token: profToken, wantCode: http.StatusForbidden, wantErr: "forbidden_role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			do(t, app, tt)
		})
	}

	t.Run("create & list", func(t *testing.T) {
		rec := do(t, app, httpTest{method: http.MethodPost, path: "/api/lectures", token: profToken, body: []byte(`{"name":" Networks "}`), wantCode: http.StatusCreated})
		var created echoapi.LectureSummary
		unmarshalObj(t, rec, &created)
		assert.Equal(t, "Networks", created.Name)
		assert.Len(t, created.Code, app.conf.Lecture.CodeLength)
		assert.Equal(t, created.Code+"-"+created.ID, created.Identifier)

		rec = do(t, app, httpTest{path: "/api/lectures", token: profToken, wantCode: http.StatusOK})
		var owned []echoapi.LectureSummary
		unmarshalObj(t, rec, &owned)
		require.Len(t, owned, 1)
		assert.Equal(t, created.ID, owned[0].ID)
	})
}

func Test_lectureApi_rotateCode(t *testing.T) {
	app := setup(t)
	prof := testutil.CreateAccount(t, app.accRepo, "Prof", "prof@test.kr", "", account.RoleInstructor, account.StateActive)
	other := testutil.CreateAccount(t, app.accRepo, "Other", "other@test.kr", "", account.RoleInstructor, account.StateActive)
	a1 := testutil.CreateAccount(t, app.accRepo, "A1", "a1@test.kr", "", account.RoleStudent, account.StateActive)
	a2 := testutil.CreateAccount(t, app.accRepo, "A2", "a2@test.kr", "", account.RoleStudent, account.StateActive)
	l1 := createLecture(t, app, prof, "Databases")
	a1Token := getToken(t, app, a1)

	do(t, app, httpTest{method: http.MethodPost, path: "/api/lectures/join", token: a1Token, body: joinBody(t, l1.Code), wantCode: http.StatusOK})

	path := "/api/lectures/" + l1.Identifier() + "/code"
	do(t, app, httpTest{method: http.MethodPost, path: path, token: getToken(t, app, other), wantCode: http.StatusForbidden, wantErr: "not_lecture_owner"})
	do(t, app, httpTest{method: http.MethodPost, path: path, token: a1Token, wantCode: http.StatusForbidden, wantErr: "forbidden_role"})

	rec := do(t, app, httpTest{method: http.MethodPost, path: path, token: getToken(t, app, prof), wantCode: http.StatusOK})
	var rotated echoapi.LectureSummary
	unmarshalObj(t, rec, &rotated)
	assert.NotEqual(t, l1.Code, rotated.Code)

	a2Token := getToken(t, app, a2)
	do(t, app, httpTest{
		method: http.MethodPost, path: "/api/lectures/join", token: a2Token, body: joinBody(t, l1.Code),
		wantCode: http.StatusNotFound, wantErr: "code_not_found",
	})
	do(t, app, httpTest{method: http.MethodPost, path: "/api/lectures/join", token: a2Token, body: joinBody(t, rotated.Code), wantCode: http.StatusOK})

	// existing members keep access, through the stale identifier too
	do(t, app, httpTest{path: "/api/lectures/" + l1.Identifier(), token: a1Token, wantCode: http.StatusOK})
	do(t, app, httpTest{path: "/api/lectures/" + rotated.Identifier, token: a1Token, wantCode: http.StatusOK})
}

func Test_lectureApi_retrieve(t *testing.T) {
	app := setup(t)
	prof := testutil.CreateAccount(t, app.accRepo, "Prof", "prof@test.kr", "", account.RoleInstructor, account.StateActive)
	outsider := testutil.CreateAccount(t, app.accRepo, "Out", "out@test.kr", "", account.RoleStudent, account.StateActive)
	l1 := createLecture(t, app, prof, "Compilers")

	tests := []httpTest{
		{name: "anonymous", path: "/api/lectures/" + l1.Identifier(), wantCode: http.StatusUnauthorized, wantErr: "unauthenticated"},
		{name: "not member", path: "/api/lectures/" + l1.Identifier(), token: getToken(t, app, outsider), wantCode: http.StatusForbidden, wantErr: "not_lecture_member"},
		{name: "bad identifier", path: "/api/lectures/garbage", token: getToken(t, app, prof), wantCode: http.StatusForbidden, wantErr: "not_lecture_member"},
		{name: "unknown lecture", path: "/api/lectures/AAAAAA-0f8fad5b-d9cb-469f-a165-70867728950e", token: getToken(t, app, outsider), wantCode: http.StatusForbidden, wantErr: "not_lecture_member"},
		{name: "unknown lecture: rotate", method: http.MethodPost, path: "/api/lectures/AAAAAA-0f8fad5b-d9cb-469f-a165-70867728950e/code", token: getToken(t, app, prof), wantCode: http.StatusForbidden, wantErr: "not_lecture_owner"},
		{name: "owner sees empty roster", path: "/api/lectures/" + l1.Identifier(), token: getToken(t, app, prof), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			do(t, app, tt)
		})
	}
}

func Test_lectureApi_join(t *testing.T) {
	app := setup(t, func(conf *core.Config) {
		conf.RateLimit.JoinPerMinute = 0 // unlimited
	})
	prof := testutil.CreateAccount(t, app.accRepo, "Prof", "prof@test.kr", "", account.RoleInstructor, account.StateActive)
	student := testutil.CreateAccount(t, app.accRepo, "Student", "student@test.kr", "", account.RoleStudent, account.StateActive)
	l1 := createLecture(t, app, prof, "Graphics")
	token := getToken(t, app, student)

	tests := []httpTest{
		{name: "instructors cannot join", method: http.MethodPost, path: "/api/lectures/join", token: getToken(t, app, prof), body: joinBody(t, l1.Code), wantCode: http.StatusForbidden, wantErr: "forbidden_role"},
		{name: "missing code", method: http.MethodPost, path: "/api/lectures/join", token: token, body: []byte(`{}`), wantCode: http.StatusBadRequest, wantErr: "validation_failed"},
		{name: "unknown code", method: http.MethodPost, path: "/api/lectures/join", token: token, body: joinBody(t, "ZZZZZZ"), wantCode: http.StatusNotFound, wantErr: "code_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			do(t, app, tt)
		})
	}

	t.Run("concurrent joins", func(t *testing.T) {
		l2 := createLecture(t, app, prof, "Concurrency")
		concurrent := testutil.CreateAccount(t, app.accRepo, "Racer", "racer@test.kr", "", account.RoleStudent, account.StateActive)
		racerToken := getToken(t, app, concurrent)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
			failed  int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req, rec := newAuthRequest(http.MethodPost, "/api/lectures/join", racerToken, joinBody(t, l2.Code))
				app.ServeHTTP(rec, req)

				mu.Lock()
				defer mu.Unlock()
				if rec.Code != http.StatusOK {
					failed++
					return
				}
				var res echoapi.JoinResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &res); err == nil && res.Created {
					created++
				}
			}()
		}
		wg.Wait()
		assert.Zero(t, failed)
		assert.Equal(t, 1, created)
	})
}

func Test_lectureApi_joinRateLimit(t *testing.T) {
	app := setup(t, func(conf *core.Config) {
		conf.RateLimit = core.RateLimitConfig{JoinPerMinute: 1, JoinBurst: 2}
	})
	student := testutil.CreateAccount(t, app.accRepo, "Student", "student@test.kr", "", account.RoleStudent, account.StateActive)
	other := testutil.CreateAccount(t, app.accRepo, "Other", "other@test.kr", "", account.RoleStudent, account.StateActive)
	token := getToken(t, app, student)

	for i := 0; i < 2; i++ {
		do(t, app, httpTest{method: http.MethodPost, path: "/api/lectures/join", token: token, body: joinBody(t, "ZZZZZZ"), wantCode: http.StatusNotFound})
	}
	do(t, app, httpTest{
		method: http.MethodPost, path: "/api/lectures/join", token: token, body: joinBody(t, "ZZZZZZ"),
		wantCode: http.StatusTooManyRequests, wantErr: "rate_limited",
	})

	// the limit is per account
	do(t, app, httpTest{method: http.MethodPost, path: "/api/lectures/join", token: getToken(t, app, other), body: joinBody(t, "ZZZZZZ"), wantCode: http.StatusNotFound})
}
