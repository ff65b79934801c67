package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/quickpost/quickpost/models"
	"github.com/quickpost/quickpost/utils"
)

// ErrPostTooShort reports an empty post body; nothing is persisted.
var ErrPostTooShort = errors.New("post is too short")

// Dispatcher sends one formatted message per call. The production
// implementation is mailer.Mailer.
type Dispatcher interface {
	Send(to, subject, body, signature string) error
}

// Notifier publishes posts and fans the notification out to every subscribed
// user, sequentially and best-effort: a failed send is logged and skipped,
// publication is never rolled back and nothing is retried.
type Notifier struct {
	db       *gorm.DB
	mail     Dispatcher
	siteName string
	baseURL  string
}

// NewNotifier wires the notifier to its record store and mail dispatcher.
func NewNotifier(db *gorm.DB, mail Dispatcher, siteName, baseURL string) *Notifier {
	return &Notifier{db: db, mail: mail, siteName: siteName, baseURL: baseURL}
}

// PublishPost validates and persists a new post for authorID, then sends one
// email per user with notifications enabled. The author is not excluded from
// the fan-out. Sends run one at a time in the calling goroutine; the caller
// blocks until the loop completes.
func (n *Notifier) PublishPost(authorID uint, text string) (*models.Post, error) {
	text = strings.TrimSpace(utils.Sanitize(text))
	if len(text) < 1 {
		return nil, ErrPostTooShort
	}

	post := models.Post{UserID: authorID, Text: text}
	if err := n.db.Create(&post).Error; err != nil {
		return nil, err
	}

	var author models.User
	if err := n.db.First(&author, authorID).Error; err != nil {
		// The post is in; notification is a side channel, not a requirement.
		n.warnf("post %d created but author %d lookup failed: %v", post.ID, authorID, err)
		return &post, nil
	}

	var recipients []models.User
	if err := n.db.Where("notifications = ?", true).Find(&recipients).Error; err != nil {
		n.warnf("post %d created but recipient query failed: %v", post.ID, err)
		return &post, nil
	}

	subject := fmt.Sprintf("New Post Published by %s", author.FirstName)
	body := fmt.Sprintf("%s has posted: \n%s", author.Email, post.Text)

	for _, r := range recipients {
		if err := n.mail.Send(r.Email, subject, body, n.signature(r)); err != nil {
			n.warnf("notification to %s for post %d failed: %v", r.Email, post.ID, err)
		}
	}

	return &post, nil
}

// signature renders the trailing block with the recipient's unsubscribe link.
func (n *Notifier) signature(recipient models.User) string {
	return fmt.Sprintf("--\n%s\nUnsubscribe: %s/api/v1/unsubscribe?token=%s",
		n.siteName, n.baseURL, recipient.UnsubscribeToken)
}

func (n *Notifier) warnf(format string, args ...interface{}) {
	if utils.Sugar != nil {
		utils.Sugar.Warnf(format, args...)
	}
}
