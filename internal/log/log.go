package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// InitLogger apexのハンドラーとログレベルを設定する
// NUTRICACHE_LOG環境変数が設定されている場合は引数より優先する
func InitLogger(level string) {
	if env := os.Getenv("NUTRICACHE_LOG"); env != "" {
		level = env
	}
	if level == "" {
		level = "INFO"
	}
	log.SetHandler(NewTextHandler(os.Stdout))

	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.SetLevel(log.InfoLevel)
		log.Warnf("[Log] 不明なログレベル %q のためinfoを使用します", level)
		return
	}
	log.SetLevel(lvl)
}

// TextHandler 1行テキスト形式でログを出力するハンドラー
type TextHandler struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextHandler(w io.Writer) *TextHandler {
	return &TextHandler{w: w}
}

// HandleLog log.Handlerの実装
func (h *TextHandler) HandleLog(e *log.Entry) error {
	names := e.Fields.Names()
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s", e.Timestamp.Format(time.DateTime), strings.ToUpper(e.Level.String()), e.Message)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields.Get(name))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}
