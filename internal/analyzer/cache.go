package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const classificationKeyPrefix = "leadscout:classification:"

// CachedClassifier remembers verdicts in Redis so the same text is not sent
// to the model twice. Cache failures fall through to the wrapped classifier.
type CachedClassifier struct {
	next   ClassifierInterface
	client *redis.Client
	ttl    time.Duration
}

// NewCachedClassifier wraps next with a Redis cache
func NewCachedClassifier(next ClassifierInterface, client *redis.Client, ttl time.Duration) *CachedClassifier {
	return &CachedClassifier{next: next, client: client, ttl: ttl}
}

// Ensure CachedClassifier implements ClassifierInterface
var _ ClassifierInterface = (*CachedClassifier)(nil)

func (c *CachedClassifier) Name() string { return c.next.Name() + "+cache" }

// Classify returns a cached verdict when one exists
func (c *CachedClassifier) Classify(ctx context.Context, text string, keywords []string) (*Classification, error) {
	key := c.key(text, keywords)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached Classification
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return &cached, nil
		}
	case !errors.Is(err, redis.Nil):
		logrus.WithError(err).Warn("Classification cache read failed")
	}

	result, err := c.next.Classify(ctx, text, keywords)
	if err != nil {
		return nil, err
	}

	// Unparseable replies are not worth remembering
	if result.Type != TypeUnknown {
		if data, err := json.Marshal(result); err == nil {
			if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
				logrus.WithError(err).Warn("Classification cache write failed")
			}
		}
	}
	return result, nil
}

func (c *CachedClassifier) key(text string, keywords []string) string {
	h := sha256.New()
	h.Write([]byte(c.next.Name()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(strings.Fields(strings.ToLower(text)), " ")))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.Join(keywords, ","))))
	return classificationKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
