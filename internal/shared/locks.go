package shared

// CreditSweepLockKey is the redis key guarding the maturation release sweep
// so overlapping cron runs skip instead of double-scanning.
func CreditSweepLockKey() string {
	return "credit:sweep:lock"
}
