package service

import "time"

// backoffDelay 计算第 attempt 次重试前的等待时长，指数退避并封顶。
// attempt 从 1 开始计数。
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	if max <= 0 {
		max = 30 * time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
