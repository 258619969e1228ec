package deb

// ControlField represents a field of a Debian control file or Packages stanza.
type ControlField string

const (
	FieldPackage      ControlField = "Package"
	FieldVersion      ControlField = "Version"
	FieldArchitecture ControlField = "Architecture"
	FieldDescription  ControlField = "Description"

	// Fields appended by the indexer, not present in the control file.
	FieldFilename ControlField = "Filename"
	FieldSize     ControlField = "Size"
	FieldMD5sum   ControlField = "MD5sum"
	FieldSHA1     ControlField = "SHA1"
	FieldSHA256   ControlField = "SHA256"
)

// ControlFile represents a standard file found in the control.tar archive.
type ControlFile string

const (
	FileControl ControlFile = "control"
)

// PackageFile represents a standard file found in the .deb archive (ar format).
type PackageFile string

const (
	PkgDebianBinary PackageFile = "debian-binary"
	// PkgControlTar is the prefix of the control member, followed by an
	// optional compression suffix.
	PkgControlTar PackageFile = "control.tar"
)

// ReleaseField represents a standard field in a Debian Release file.
type ReleaseField string

const (
	RelOrigin        ReleaseField = "Origin"
	RelLabel         ReleaseField = "Label"
	RelSuite         ReleaseField = "Suite"
	RelCodename      ReleaseField = "Codename"
	RelDate          ReleaseField = "Date"
	RelArchitectures ReleaseField = "Architectures"
	RelComponents    ReleaseField = "Components"
	RelDescription   ReleaseField = "Description"
	RelMD5Sum        ReleaseField = "MD5Sum"
	RelSHA1          ReleaseField = "SHA1"
	RelSHA256        ReleaseField = "SHA256"
)
