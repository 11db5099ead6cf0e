package redisclient

import "fmt"

// RedisPrefix is the prefix for all Redis keys written by Park-Ease
const RedisPrefix = "parkease:"

// VehicleLockPrefix is the key prefix handed to the vehicle Locker.
const VehicleLockPrefix = RedisPrefix + "lock:vehicle:"

// VehicleLockKey returns the Redis key guarding booking creation for a vehicle
func VehicleLockKey(vehicleID string) string {
	return fmt.Sprintf("%s%s", VehicleLockPrefix, vehicleID)
}
