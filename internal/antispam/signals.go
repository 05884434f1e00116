package antispam

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"cleantalk-antispam/internal/cleantalk"
	"cleantalk-antispam/internal/common/errors"
)

func formSubmitKey(formID string) string {
	return SessionKeyFormSubmit + formID
}

// StartFormSubmitTime records the moment formID was rendered.
func (c *Component) StartFormSubmitTime(ctx context.Context, sess Session, formID string) error {
	now := strconv.FormatInt(c.now().Unix(), 10)
	if err := sess.Set(ctx, formSubmitKey(formID), now); err != nil {
		return errors.NewSessionStoreError("set", err)
	}
	return nil
}

// CalcFormSubmitTime returns the seconds elapsed since StartFormSubmitTime
// for formID, or nil when no positive start time is stored. A nil formID is
// read from the posted ct_formid field; an empty one names the unnamed form.
// With clear the stored start time is removed.
func (c *Component) CalcFormSubmitTime(ctx context.Context, rc RequestContext, sess Session, formID *string, clear bool) (*int64, error) {
	var id string
	if formID != nil {
		id = *formID
	} else if rc != nil {
		id = rc.Post(FieldFormID)
	}
	key := formSubmitKey(id)

	raw, found, err := sess.Get(ctx, key)
	if err != nil {
		return nil, errors.NewSessionStoreError("get", err)
	}

	if clear {
		if err := sess.Remove(ctx, key); err != nil {
			return nil, errors.NewSessionStoreError("remove", err)
		}
	}

	if !found {
		return nil, nil
	}
	start, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || start <= 0 {
		return nil, nil
	}

	elapsed := c.now().Unix() - start
	return &elapsed, nil
}

// CheckJsCode is the value a rendered form's script echoes back in ct_checkjs.
func (c *Component) CheckJsCode() string {
	sum := md5.Sum([]byte(c.config.APIKey + c.config.JSChallengeSalt))
	return hex.EncodeToString(sum[:])
}

// IsJavascriptEnable returns 1 when the posted ct_checkjs matches CheckJsCode.
func (c *Component) IsJavascriptEnable(rc RequestContext) int {
	if rc != nil && rc.Post(FieldCheckJS) == c.CheckJsCode() {
		return 1
	}
	return 0
}

func encodeSenderInfo(info cleantalk.SenderInfo) (string, error) {
	b, err := json.Marshal(info)
	if err != nil {
		return "", errors.NewInvalidArgumentError("sender info: " + err.Error())
	}
	return string(b), nil
}
