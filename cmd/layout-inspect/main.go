// Command layout-inspect prints the size and alignment of the core
// on-disk structs, a quick guard against an accidental layout change
// to PageHeader or PageVersion.
package main

import (
	"fmt"
	"unsafe"

	"github.com/quietcore/nodaldb"
)

func main() {
	var header nodaldb.PageHeader
	var version nodaldb.PageVersion
	var page nodaldb.Page

	fmt.Printf("PageHeader align=%d size=%d\n", unsafe.Alignof(header), unsafe.Sizeof(header))
	fmt.Printf("PageVersion align=%d size=%d\n", unsafe.Alignof(version), unsafe.Sizeof(version))
	fmt.Printf("Page        align=%d size=%d\n", unsafe.Alignof(page), unsafe.Sizeof(page))
}
