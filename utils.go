package main

func maxInt(i, j int) int {
	if i > j {
		return i
	}
	return j
}
