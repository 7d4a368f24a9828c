package bigquerylib

import "time"

// Partition ids for daily-partitioned tables are the partition date as YYYYMMDD.
const partitionIDFormat = "20060102"

func PartitionID(date time.Time) string {
	return date.Format(partitionIDFormat)
}

// YesterdayPartitionID returns the partition id for the day before [now], in [now]'s location.
func YesterdayPartitionID(now time.Time) string {
	return PartitionID(now.AddDate(0, 0, -1))
}
