package redis

// Key layout. Everything lives under the marketsync: prefix so a shared
// Redis instance stays navigable.
const (
	workerIDsKey = "marketsync:workers"
)

func workerKey(workerID string) string {
	return "marketsync:worker:" + workerID
}

func lockKey(name string) string {
	return "marketsync:lock:" + name
}
