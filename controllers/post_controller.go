package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quickpost/quickpost/middleware"
	"github.com/quickpost/quickpost/models"
	"github.com/quickpost/quickpost/services"
	"github.com/quickpost/quickpost/utils"
)

const postListCachePrefix = "cache:posts:list:"

// PostController manages posts, favorites and likes. Publication delegates to
// the notifier so the mail fan-out stays with the core.
type PostController struct {
	db       *gorm.DB
	notifier *services.Notifier
}

// NewPostController creates a PostController.
func NewPostController(db *gorm.DB, notifier *services.Notifier) *PostController {
	return &PostController{db: db, notifier: notifier}
}

// CreatePost publishes a new post for the authenticated principal. The
// response is delayed until the notification fan-out completes.
func (p *PostController) CreatePost(ctx *gin.Context) {
	// No binding:"required" on Text: an empty post is a validation outcome
	// ("too short"), not a malformed payload.
	var req struct {
		Text string `json:"text"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	userID, ok := middleware.PrincipalID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	post, err := p.notifier.PublishPost(userID, req.Text)
	if err != nil {
		if errors.Is(err, services.ErrPostTooShort) {
			utils.Error(ctx, http.StatusBadRequest, 40021, "Post is too short")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create post")
		return
	}

	utils.InvalidateByPrefix(postListCachePrefix)
	utils.Success(ctx, gin.H{"post": post})
}

// ListPosts returns paginated posts with author information, newest first.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	cacheKey := fmt.Sprintf("%spage=%d:size=%d", postListCachePrefix, page, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var posts []models.Post
	var total int64
	query := p.db.Model(&models.Post{}).Preload("User").Order("created_at DESC")
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count posts")
		return
	}
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list posts")
		return
	}

	payload := gin.H{
		"items":      posts,
		"pagination": paginationMeta(page, pageSize, total),
	}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// GetPost returns a single post with its author and like count.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID := ctx.Param("id")

	var post models.Post
	if err := p.db.Preload("User").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40403, "Post does not exist.")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load post")
		return
	}

	var likes int64
	if err := p.db.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&likes).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to count likes")
		return
	}

	utils.Success(ctx, gin.H{"post": post, "likes": likes})
}

// DeletePost removes a post. Only the author or an administrator may delete;
// a missing post is a reported no-op, not a crash.
func (p *PostController) DeletePost(ctx *gin.Context) {
	postID := ctx.Param("id")

	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40403, "Post does not exist.")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to load post")
		return
	}

	userID, ok := middleware.PrincipalID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if post.UserID != userID && !middleware.IsAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40301, "You do not have permission to delete this post.")
		return
	}

	if err := p.db.Delete(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to delete post")
		return
	}
	// Favorites and likes pointing at the post go with it.
	p.db.Where("post_id = ?", post.ID).Delete(&models.Favorite{})
	p.db.Where("post_id = ?", post.ID).Delete(&models.Like{})

	utils.InvalidateByPrefix(postListCachePrefix)
	utils.Success(ctx, gin.H{"message": "Post deleted."})
}

// ListUserPosts returns all posts authored by the user with the given email.
func (p *PostController) ListUserPosts(ctx *gin.Context) {
	email := strings.TrimSpace(ctx.Param("email"))
	user, err := services.FindUserByEmail(p.db, email)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to look up user")
		return
	}
	if user == nil {
		utils.Error(ctx, http.StatusNotFound, 40404, "No user with that email exists.")
		return
	}

	var posts []models.Post
	if err := p.db.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to list user posts")
		return
	}

	utils.Success(ctx, gin.H{
		"first_name": user.FirstName,
		"email":      user.Email,
		"items":      posts,
	})
}

// ToggleFavorite flags or unflags a post for the principal. Existence of the
// join row is the flag.
func (p *PostController) ToggleFavorite(ctx *gin.Context) {
	p.toggleFlag(ctx, "favorited", func(userID, postID uint) (bool, error) {
		var fav models.Favorite
		err := p.db.Where("user_id = ? AND post_id = ?", userID, postID).First(&fav).Error
		if err == nil {
			return false, p.db.Delete(&fav).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		return true, p.db.Create(&models.Favorite{UserID: userID, PostID: postID}).Error
	})
}

// ToggleLike flags or unflags a like on a post for the principal.
func (p *PostController) ToggleLike(ctx *gin.Context) {
	p.toggleFlag(ctx, "liked", func(userID, postID uint) (bool, error) {
		var like models.Like
		err := p.db.Where("user_id = ? AND post_id = ?", userID, postID).First(&like).Error
		if err == nil {
			return false, p.db.Delete(&like).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		return true, p.db.Create(&models.Like{UserID: userID, PostID: postID}).Error
	})
}

// toggleFlag loads the post, flips the join row through toggle and reports
// the new state under the given key.
func (p *PostController) toggleFlag(ctx *gin.Context, key string, toggle func(userID, postID uint) (bool, error)) {
	postID := ctx.Param("id")

	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40403, "Post does not exist.")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to load post")
		return
	}

	userID, ok := middleware.PrincipalID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	flagged, err := toggle(userID, post.ID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to toggle "+key)
		return
	}
	utils.Success(ctx, gin.H{key: flagged, "post_id": post.ID})
}

// ListMyFavorites returns the posts the principal has favorited.
func (p *PostController) ListMyFavorites(ctx *gin.Context) {
	userID, ok := middleware.PrincipalID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var posts []models.Post
	err := p.db.
		Joins("JOIN favorites ON favorites.post_id = posts.id").
		Where("favorites.user_id = ?", userID).
		Preload("User").
		Order("favorites.created_at DESC").
		Find(&posts).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to list favorites")
		return
	}

	utils.Success(ctx, gin.H{"items": posts})
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page, pageSize := 1, 10
	if v := strings.TrimSpace(pageStr); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := strings.TrimSpace(sizeStr); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}
	return page, pageSize
}

func paginationMeta(page, pageSize int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}
