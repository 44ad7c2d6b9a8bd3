package marginalia

// Version is the marginalia release version reported by --version.
const Version = "0.4.0"
