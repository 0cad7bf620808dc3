package scheduler_interfaces

// LifecycleNotifier ホストプロセスがアクティブになったことを通知する
type LifecycleNotifier interface {
	// Notify アクティブ化を通知する（ブロックしない）
	Notify()
}
