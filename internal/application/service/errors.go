package service

import (
	platformerrors "github.com/jmgilman/go/errors"
)

// CodeAbandonedWrite リトライを使い切って書き込みを諦めたことを示すエラーコード
// キャッシュはそのまま使えるが、書き込みは行われていない
const CodeAbandonedWrite platformerrors.ErrorCode = "ABANDONED_WRITE"

// IsValidation 不正な入力によるエラーかどうか
func IsValidation(err error) bool {
	return err != nil && platformerrors.GetCode(err) == platformerrors.CodeInvalidInput
}

// IsAbandonedWrite 永続化を諦めたエラーかどうか
func IsAbandonedWrite(err error) bool {
	return err != nil && platformerrors.GetCode(err) == CodeAbandonedWrite
}

func abandoned(err error, op string, attempts int) error {
	wrapped := platformerrors.Wrapf(err, CodeAbandonedWrite, "%s abandoned after %d attempt(s)", op, attempts)
	return platformerrors.WithClassification(
		platformerrors.WithContext(wrapped, "attempts", attempts),
		platformerrors.ClassificationPermanent,
	)
}

func stagingFailed(err error, op string) error {
	return platformerrors.WithClassification(
		platformerrors.Wrapf(err, CodeAbandonedWrite, "%s abandoned: staging failed", op),
		platformerrors.ClassificationPermanent,
	)
}
