package display

type nullTask struct{}

func (nullTask) Log(string) {}
func (nullTask) SetStage(string, string) {}
func (nullTask) Progress(int, string) {}
func (nullTask) Done() {}

// NullTask returns a Task that discards all updates. Useful for small
// transfers that do not warrant a status line.
func NullTask() Task {
	return nullTask{}
}

type nullDisplay struct{}

func (nullDisplay) StartTask(string) Task { return nullTask{} }
func (nullDisplay) Log(string) {}
func (nullDisplay) Print(string) {}
func (nullDisplay) SetVerbose(bool) {}
func (nullDisplay) Close() {}

// NullDisplay returns a Display that renders nothing.
func NullDisplay() Display {
	return nullDisplay{}
}
