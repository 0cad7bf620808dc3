package scheduler

// Notifier ホストプロセスが「アクティブになった」ことを伝えるシグナル
// 受け手が処理中に届いた通知は1つにまとめられる
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify アクティブ化を通知する。ブロックしない
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// Activations 通知を受け取るチャネル
func (n *Notifier) Activations() <-chan struct{} {
	return n.ch
}
