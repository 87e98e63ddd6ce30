package delivery

// PairKey 计算1:1会话的对称键
// pair(a,b) = min*2^30 + max，保证pair(a,b)==pair(b,a)
// 活跃用户ID空间内无碰撞（ID < 2^30）
func PairKey(a, b uint64) uint64 {
	if a > b {
		a, b = b, a
	}
	return a<<30 | b
}
