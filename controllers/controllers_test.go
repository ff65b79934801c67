package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quickpost/quickpost/middleware"
	"github.com/quickpost/quickpost/models"
	"github.com/quickpost/quickpost/services"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("ADMIN_EMAILS", "admin@example.com")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type recordingDispatcher struct {
	sent    []string
	failFor map[string]bool
}

func (d *recordingDispatcher) Send(to, subject, body, signature string) error {
	d.sent = append(d.sent, to)
	if d.failFor[to] {
		return errors.New("relay unreachable")
	}
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testApp struct {
	router     *gin.Engine
	db         *gorm.DB
	dispatcher *recordingDispatcher
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}, &models.Favorite{}, &models.Like{}))

	dispatcher := &recordingDispatcher{failFor: map[string]bool{}}
	notifier := services.NewNotifier(db, dispatcher, "Quickpost", "http://localhost:8080")

	authCtrl := NewAuthController(db)
	postCtrl := NewPostController(db, notifier)

	r := gin.New()
	r.POST("/api/v1/auth/register", authCtrl.Register)
	r.POST("/api/v1/auth/login", authCtrl.Login)
	r.POST("/api/v1/auth/guest", authCtrl.GuestLogin)
	r.GET("/api/v1/auth/me", middleware.AuthRequired(), authCtrl.Me)
	r.PATCH("/api/v1/auth/notifications", middleware.AuthRequired(), authCtrl.UpdateNotifications)
	r.GET("/api/v1/unsubscribe", authCtrl.Unsubscribe)
	r.GET("/api/v1/posts", postCtrl.ListPosts)
	r.GET("/api/v1/posts/:id", postCtrl.GetPost)
	r.GET("/api/v1/users/:email/posts", postCtrl.ListUserPosts)
	r.POST("/api/v1/posts", middleware.AuthRequired(), postCtrl.CreatePost)
	r.DELETE("/api/v1/posts/:id", middleware.AuthRequired(), postCtrl.DeletePost)
	r.POST("/api/v1/posts/:id/favorite", middleware.AuthRequired(), postCtrl.ToggleFavorite)
	r.POST("/api/v1/posts/:id/like", middleware.AuthRequired(), postCtrl.ToggleLike)
	r.GET("/api/v1/favorites", middleware.AuthRequired(), postCtrl.ListMyFavorites)

	return &testApp{router: r, db: db, dispatcher: dispatcher}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func (a *testApp) register(t *testing.T, email, firstName, password string) string {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":      email,
		"first_name": firstName,
		"password":   password,
		"confirm":    password,
	})
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestRegisterAndLoginFlow(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "nir@example.com", "Nir", "sevenchars")

	// Duplicate email reports the uniqueness reason.
	w, env := app.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":      "nir@example.com",
		"first_name": "Other",
		"password":   "sevenchars",
		"confirm":    "sevenchars",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Email already exists", env.Message)

	// Unknown email.
	w, env = app.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "ghost@example.com",
		"password": "whatever",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "No such email", env.Message)

	// Wrong password.
	w, env = app.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "nir@example.com",
		"password": "wrongwrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Incorrect password", env.Message)

	// Success greets by first name.
	w, env = app.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "nir@example.com",
		"password": "sevenchars",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Greeting string `json:"greeting"`
		Token    string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Welcome back, Nir", data.Greeting)
	assert.NotEmpty(t, data.Token)
}

func TestRegisterValidationReasons(t *testing.T) {
	app := newTestApp(t)

	cases := []struct {
		name   string
		body   gin.H
		reason string
	}{
		{"password mismatch", gin.H{"email": "a@b.com", "first_name": "Bob", "password": "sevenchars", "confirm": "different"}, "Passwords don't match"},
		{"short email", gin.H{"email": "a@b", "first_name": "Bob", "password": "sevenchars", "confirm": "sevenchars"}, "Email must be at least 4 characters"},
		{"short name", gin.H{"email": "a@b.com", "first_name": "B", "password": "sevenchars", "confirm": "sevenchars"}, "First name must be at least 2 characters"},
		{"short password", gin.H{"email": "a@b.com", "first_name": "Bob", "password": "short", "confirm": "short"}, "Password must be at least 7 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, env := app.do(t, http.MethodPost, "/api/v1/auth/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.reason, env.Message)
		})
	}
}

func TestGuestLogin(t *testing.T) {
	app := newTestApp(t)

	w, env := app.do(t, http.MethodPost, "/api/v1/auth/guest", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Token    string `json:"token"`
		Password string `json:"password"`
		User     struct {
			Email         string `json:"email"`
			FirstName     string `json:"first_name"`
			Notifications bool   `json:"notifications"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "guest1@guest.com", data.User.Email)
	assert.Equal(t, "Guest", data.User.FirstName)
	assert.False(t, data.User.Notifications)
	assert.Len(t, data.Password, 7)
	assert.NotEmpty(t, data.Token)

	// The session is live immediately.
	w, _ = app.do(t, http.MethodGet, "/api/v1/auth/me", data.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Second guest continues the numbering.
	_, env = app.do(t, http.MethodPost, "/api/v1/auth/guest", "", nil)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "guest2@guest.com", data.User.Email)
}

func TestCreatePostFansOut(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "ava@example.com", "Ava", "sevenchars")
	app.register(t, "sub@example.com", "Sub", "sevenchars")

	// Guests are unsubscribed and must not receive mail.
	app.do(t, http.MethodPost, "/api/v1/auth/guest", "", nil)

	w, env := app.do(t, http.MethodPost, "/api/v1/posts", token, gin.H{"text": "hello"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	assert.ElementsMatch(t, []string{"ava@example.com", "sub@example.com"}, app.dispatcher.sent)

	// Empty post: reported reason, nothing persisted, no mail.
	app.dispatcher.sent = nil
	w, env = app.do(t, http.MethodPost, "/api/v1/posts", token, gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Post is too short", env.Message)
	assert.Empty(t, app.dispatcher.sent)

	var count int64
	require.NoError(t, app.db.Model(&models.Post{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreatePostSurvivesDispatchFailure(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "ava@example.com", "Ava", "sevenchars")
	app.register(t, "sub@example.com", "Sub", "sevenchars")
	app.dispatcher.failFor["ava@example.com"] = true

	w, _ := app.do(t, http.MethodPost, "/api/v1/posts", token, gin.H{"text": "hello"})
	assert.Equal(t, http.StatusOK, w.Code, "mail failure never fails the publish request")
	assert.Len(t, app.dispatcher.sent, 2, "remaining recipients are still attempted")
}

func TestDeletePostPermissions(t *testing.T) {
	app := newTestApp(t)
	authorToken := app.register(t, "ava@example.com", "Ava", "sevenchars")
	otherToken := app.register(t, "other@example.com", "Other", "sevenchars")
	adminToken := app.register(t, "admin@example.com", "Admin", "sevenchars")

	makePost := func() uint {
		_, env := app.do(t, http.MethodPost, "/api/v1/posts", authorToken, gin.H{"text": "hello"})
		var data struct {
			Post models.Post `json:"post"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		return data.Post.ID
	}

	// Missing post is a reported no-op.
	w, env := app.do(t, http.MethodDelete, "/api/v1/posts/9999", authorToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Post does not exist.", env.Message)

	// A stranger may not delete.
	id := makePost()
	w, env = app.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", id), otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You do not have permission to delete this post.", env.Message)

	// The author may.
	w, _ = app.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", id), authorToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// An administrator may moderate anyone's post.
	id = makePost()
	w, _ = app.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", id), adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestToggleFavoriteAndLike(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "ava@example.com", "Ava", "sevenchars")

	_, env := app.do(t, http.MethodPost, "/api/v1/posts", token, gin.H{"text": "hello"})
	var created struct {
		Post models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	path := fmt.Sprintf("/api/v1/posts/%d/favorite", created.Post.ID)

	// First toggle flags, second unflags.
	_, env = app.do(t, http.MethodPost, path, token, nil)
	assert.Contains(t, string(env.Data), `"favorited":true`)
	_, env = app.do(t, http.MethodPost, path, token, nil)
	assert.Contains(t, string(env.Data), `"favorited":false`)

	likePath := fmt.Sprintf("/api/v1/posts/%d/like", created.Post.ID)
	_, env = app.do(t, http.MethodPost, likePath, token, nil)
	assert.Contains(t, string(env.Data), `"liked":true`)

	// Like count shows up on the post.
	_, env = app.do(t, http.MethodGet, fmt.Sprintf("/api/v1/posts/%d", created.Post.ID), "", nil)
	assert.Contains(t, string(env.Data), `"likes":1`)

	// Favoriting a missing post is a reported no-op.
	w, env := app.do(t, http.MethodPost, "/api/v1/posts/9999/favorite", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Post does not exist.", env.Message)
}

func TestListUserPostsByEmail(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "ava@example.com", "Ava", "sevenchars")
	app.do(t, http.MethodPost, "/api/v1/posts", token, gin.H{"text": "first"})
	app.do(t, http.MethodPost, "/api/v1/posts", token, gin.H{"text": "second"})

	w, env := app.do(t, http.MethodGet, "/api/v1/users/ava@example.com/posts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		FirstName string        `json:"first_name"`
		Items     []models.Post `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Ava", data.FirstName)
	assert.Len(t, data.Items, 2)

	w, env = app.do(t, http.MethodGet, "/api/v1/users/ghost@example.com/posts", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No user with that email exists.", env.Message)
}

func TestUnsubscribeLink(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "ava@example.com", "Ava", "sevenchars")

	var user models.User
	require.NoError(t, app.db.Where("email = ?", "ava@example.com").First(&user).Error)
	require.True(t, user.Notifications)

	w, _ := app.do(t, http.MethodGet, "/api/v1/unsubscribe?token="+user.UnsubscribeToken, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, app.db.First(&user, user.ID).Error)
	assert.False(t, user.Notifications)

	w, env := app.do(t, http.MethodGet, "/api/v1/unsubscribe?token=bogus", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "invalid unsubscribe link", env.Message)
}

func TestUpdateNotifications(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "ava@example.com", "Ava", "sevenchars")

	w, _ := app.do(t, http.MethodPatch, "/api/v1/auth/notifications", token, gin.H{"notifications": false})
	assert.Equal(t, http.StatusOK, w.Code)

	var user models.User
	require.NoError(t, app.db.Where("email = ?", "ava@example.com").First(&user).Error)
	assert.False(t, user.Notifications)

	// Re-subscribing works too.
	w, _ = app.do(t, http.MethodPatch, "/api/v1/auth/notifications", token, gin.H{"notifications": true})
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, app.db.First(&user, user.ID).Error)
	assert.True(t, user.Notifications)
}

func TestListPostsPagination(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "ava@example.com", "Ava", "sevenchars")
	for i := 0; i < 12; i++ {
		app.do(t, http.MethodPost, "/api/v1/posts", token, gin.H{"text": fmt.Sprintf("post %d", i)})
	}

	_, env := app.do(t, http.MethodGet, "/api/v1/posts?page=2&page_size=10", "", nil)
	var data struct {
		Items      []models.Post `json:"items"`
		Pagination struct {
			Total      int64 `json:"total"`
			TotalPages int   `json:"total_pages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.Items, 2)
	assert.EqualValues(t, 12, data.Pagination.Total)
	assert.Equal(t, 2, data.Pagination.TotalPages)
}
