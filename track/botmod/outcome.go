package botmod

// Outcome 模块单次连接尝试的结果标志。
//
//   - Working：本次拿到了有效数据，整个任务记为成功。
//   - Continue：继续尝试下一个 C2 地址（与 Working 无关）。
//   - Archive：任务结束后永久归档该 bot，优先级高于 Working。
type Outcome struct {
	Working  bool
	Continue bool
	Archive  bool
}

// Merge 把一次尝试的结果并入累计结果。Continue 只控制迭代，不参与累计。
func (o Outcome) Merge(next Outcome) Outcome {
	return Outcome{
		Working: o.Working || next.Working,
		Archive: o.Archive || next.Archive,
	}
}
