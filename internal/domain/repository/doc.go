// Package repository define las interfaces de acceso a datos del store
// central: identidades, tenants, membresías y tokens de documentos.
//
// Las implementaciones viven en internal/store. Los servicios dependen
// solo de estas interfaces para poder testearse con fakes.
package repository
