// The main package for the grantsetl executable.
package main

import (
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/cmd"
)

func main() {
	cmd.Execute()
}
